// Package render turns assistant markdown into plain terminal text.
package render
