// Package parser converts command line input into values: property values,
// key=value assignments and natural language time expressions.
package parser
