package minify

import (
	"bytes"
	"io"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/js"
)

// pureAnnotation is the marker minifiers honour for side-effect-free calls.
const pureAnnotation = "/* @__PURE__ */ "

// keywords after which a '/' starts a regular expression literal.
var regexpKeywords = map[string]bool{
	"return": true, "typeof": true, "instanceof": true, "in": true, "of": true,
	"new": true, "delete": true, "void": true, "throw": true, "case": true,
	"do": true, "else": true, "yield": true, "await": true,
}

// MarkPure annotates every call whose callee is exactly one of names.
//
// Matching is by exact identifier: property accesses (x.A2(...)), longer
// identifiers (XA2(...)), declarations (function A2(...)) and text inside
// strings, comments and regular expressions are never touched. Calls that
// already carry a purity annotation are left alone, so marking is idempotent.
// If src cannot be tokenised it is returned unchanged and the minifier
// reports the problem.
func MarkPure(src []byte, names []string) []byte {
	if len(names) == 0 {
		return src
	}
	pure := make(map[string]bool, len(names))
	for _, n := range names {
		pure[n] = true
	}

	l := js.NewLexer(parse.NewInputBytes(src))
	out := make([]byte, 0, len(src)+len(src)/16)

	prev := ""         // previous significant token text
	candidate := -1    // offset in out where a matching callee starts
	annotated := false // a purity comment precedes the current token

	for {
		tt, data := l.Next()
		if tt == js.ErrorToken {
			if l.Err() != io.EOF {
				return src
			}
			break
		}

		switch tt {
		case js.WhitespaceToken, js.LineTerminatorToken:
			out = append(out, data...)
			continue
		case js.CommentToken, js.CommentLineTerminatorToken:
			if bytes.Contains(data, []byte("__PURE__")) {
				annotated = true
			}
			out = append(out, data...)
			continue
		}

		if (tt == js.DivToken || tt == js.DivEqToken) && regexpAllowed(prev) {
			tt, data = l.RegExp()
			if tt == js.ErrorToken {
				return src
			}
		}

		text := string(data)
		if text == "(" && candidate >= 0 {
			out = append(out[:candidate], append([]byte(pureAnnotation), out[candidate:]...)...)
		}
		candidate = -1

		if tt == js.IdentifierToken && pure[text] && !annotated &&
			prev != "." && prev != "?." && prev != "function" && prev != "new" {
			candidate = len(out)
		}
		annotated = false

		out = append(out, data...)
		prev = text
	}
	return out
}

// regexpAllowed reports whether a '/' following prev begins a regular
// expression rather than a division.
func regexpAllowed(prev string) bool {
	if prev == "" {
		return true
	}
	switch prev {
	case ")", "]", "}":
		return false
	}
	c := prev[0]
	if c == '_' || c == '$' || c == '"' || c == '\'' || c == '`' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c >= 0x80 {
		return regexpKeywords[prev]
	}
	// An earlier regular expression literal ends an operand.
	if c == '/' && prev != "/" && prev != "/=" {
		return false
	}
	return true
}
