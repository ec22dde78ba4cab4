// Package codec converts values to and from their persisted string form.
//
// The default JSON codec extends plain JSON with a small, closed vocabulary
// of types that JSON cannot represent natively:
//
//   - time.Time (lost to a plain string otherwise)
//   - maps with non-string keys (JSON object keys must be strings)
//   - Set (a plain array would lose the uniqueness semantics)
//   - Undefined (an explicit "no value" distinct from JSON null)
//
// Each special value is encoded as a tagged object {"__kind": k, "payload": p}
// and the whole value is wrapped in a single-field envelope {"data": ...}
// before marshaling. The envelope guarantees that the tag interceptor sees
// the value even when the special type sits at the top level. The decoder
// recognizes exactly this tag set and reconstructs native types at any
// nesting depth; objects carrying an unknown "__kind" are left untouched.
//
// Note that JSON numbers decode as float64, matching encoding/json.
//
// The ICodec interface is pluggable: the seal sub-package wraps any codec
// with authenticated encryption, and store configurations may supply their
// own implementation.
package codec
