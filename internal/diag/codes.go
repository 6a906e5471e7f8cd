package diag

import (
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// I/O
	IOInfo          Code = 1000
	IOLoadFileError Code = 1001

	// Target ABI layer
	AbiInfo              Code = 4000
	AbiUnsupportedTarget Code = 4001
	AbiIncompleteType    Code = 4002
	AbiInvalidArraySize  Code = 4003
	AbiTooManyArguments  Code = 4004
	AbiPlanMismatch      Code = 4005

	// Constant evaluation
	CstInfo             Code = 5000
	CstConstantOverflow Code = 5001
	CstDivisionByZero   Code = 5002
	CstNotConstant      Code = 5003
	CstSyntax           Code = 5004

	// ABI description files
	DscInfo          Code = 6000
	DscInvalid       Code = 6001
	DscUnknownType   Code = 6002
	DscDuplicateDecl Code = 6003
	DscUnknownFunc   Code = 6004
	DscArgCount      Code = 6005
)

var (
	codeDescription = map[Code]string{
		UnknownCode:          "Unknown error",
		IOInfo:               "I/O information",
		IOLoadFileError:      "I/O load file error",
		AbiInfo:              "ABI information",
		AbiUnsupportedTarget: "Unsupported target",
		AbiIncompleteType:    "Incomplete type",
		AbiInvalidArraySize:  "Invalid array size",
		AbiTooManyArguments:  "Too many arguments",
		AbiPlanMismatch:      "Call and entry plans disagree",
		CstInfo:              "Constant information",
		CstConstantOverflow:  "Constant overflow",
		CstDivisionByZero:    "Division by zero in constant expression",
		CstNotConstant:       "Expression is not constant",
		CstSyntax:            "Malformed constant expression or type name",
		DscInfo:              "Description information",
		DscInvalid:           "Invalid ABI description",
		DscUnknownType:       "Unknown type name",
		DscDuplicateDecl:     "Duplicate declaration",
		DscUnknownFunc:       "Call to undeclared function",
		DscArgCount:          "Argument count does not match prototype",
	}
)

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("IO%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("ABI%04d", ic)
	case ic >= 5000 && ic < 6000:
		return fmt.Sprintf("CST%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("DSC%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[Code(0)]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
