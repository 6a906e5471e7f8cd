// Package abi classifies C types under the SysV calling conventions and
// turns function signatures into placement plans for calls and entries.
//
// On x86_64 every aggregate of at most two eightbytes is split into
// eightbytes, each classified INTEGER, FLOAT or MEMORY and merged field by
// field; on i386 everything travels on the stack and aggregates are always
// returned through a hidden pointer.
package abi
