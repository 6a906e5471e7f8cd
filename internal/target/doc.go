// Package target describes the two supported SysV x86 targets: scalar
// sizes and alignments, argument register files and stack slot rules.
//
// A Descriptor is a plain value built from arrays, so copies never alias and
// a descriptor can be shared between goroutines without synchronisation.
package target
