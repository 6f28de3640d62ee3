package dae

import (
	"daelsp/internal/analysis"
	"daelsp/internal/parser"
)

// Language implements analysis.Language and analysis.Features for dae.
type Language struct{}

var (
	_ analysis.Language = Language{}
	_ analysis.Features = Language{}
)

func (Language) Name() string { return "dae" }

func (Language) Grammar() *parser.Grammar { return Grammar }

func (Language) Rules() []analysis.Rule { return rules }
