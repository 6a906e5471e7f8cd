// Package machine executes call and entry plans on byte images: values are
// encoded in their target layout, the caller writes them into a register
// file and an argument area, and the callee reads them back, builds the
// register-save area and walks its variadic arguments.
//
// It exists so that marshalling can be checked end to end without a code
// generator.
package machine
