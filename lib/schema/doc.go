// Package schema normalizes heterogeneous validation styles into one calling
// convention consumed by the store engine.
//
// The required capability is Schema[T].Parse: unknown data in, typed value or
// error out. Implementations may additionally provide the TryParser
// capability for a guaranteed non-panicking path. SafeParse is the single
// boundary the engine calls: it prefers TryParse and otherwise wraps Parse
// in a recovery boundary, so a misbehaving validator can never crash a read.
//
// Shipped adapters:
//
//   - Func: any parse closure
//   - String, Int, Float, Bool, Any: primitive checks
//   - Struct[T]: mapstructure decoding by json field name plus
//     go-playground/validator struct-tag validation
package schema
