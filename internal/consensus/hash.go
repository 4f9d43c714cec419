package consensus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/attestnet/attestnet/pkg/crypto"
	"github.com/attestnet/attestnet/pkg/types"
)

// HashResult computes the canonical BLAKE3 digest of a submission result.
// The serialization is order-independent of map key ordering and uses
// stable number formatting, so two workers producing semantically identical
// results always hash equal. Grouping is exact-match only: no numeric
// tolerance is applied.
func HashResult(result map[string]any) types.Hash {
	var buf bytes.Buffer
	writeCanonical(&buf, result)
	return crypto.Hash(buf.Bytes())
}

// writeCanonical serializes a JSON-shaped value deterministically:
// object keys sorted, floats in shortest round-trip form.
func writeCanonical(buf *bytes.Buffer, v any) {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		writeJSONString(buf, val)
	case float64:
		buf.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case float32:
		buf.WriteString(strconv.FormatFloat(float64(val), 'g', -1, 64))
	case int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(val, 10))
	case json.Number:
		buf.WriteString(val.String())
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeJSONString(buf, k)
			buf.WriteByte(':')
			writeCanonical(buf, val[k])
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonical(buf, item)
		}
		buf.WriteByte(']')
	default:
		// Uncommon concrete types fall back to encoding/json, which is
		// deterministic for any single concrete type.
		data, err := json.Marshal(val)
		if err != nil {
			fmt.Fprintf(buf, "%q", fmt.Sprintf("%v", val))
			return
		}
		buf.Write(data)
	}
}

// writeJSONString writes a JSON-escaped string.
func writeJSONString(buf *bytes.Buffer, s string) {
	data, err := json.Marshal(s)
	if err != nil {
		fmt.Fprintf(buf, "%q", s)
		return
	}
	buf.Write(data)
}
