// Package consteval folds C89 integer constant expressions with the scalar
// widths of a target: literal typing, integer promotions and the usual
// arithmetic conversions all use the target descriptor, so the same text can
// fold to different values on i386 and x86_64.
//
// The package also owns the small scanner and parser for constant
// expressions and abstract type names ("unsigned long", "struct S *",
// "char [4]") that declaration handling builds on.
package consteval
