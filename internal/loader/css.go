package loader

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// cssStep parses a stylesheet into a module object: a list of
// [id, cssText] pairs with a toString method. Relative url() references
// become require() calls so the assets they name go through their own rules.
func cssStep(ctx context.Context, a *Asset, opts Options, next Next) error {
	expr, err := cssExpression(a.Source)
	if err != nil {
		return err
	}
	id := jsString(filepath.ToSlash(filepath.Base(a.Path)))

	var b strings.Builder
	b.WriteString("var list = [];\n")
	fmt.Fprintf(&b, "list.push([%s, %s, \"\"]);\n", id, expr)
	b.WriteString("list.toString = function () {\n")
	b.WriteString("  return this.map(function (item) { return item[1]; }).join(\"\\n\");\n")
	b.WriteString("};\n")
	b.WriteString("module.exports = list;\n")
	a.Contents = b.String()
	return next(ctx, a)
}

// cssExpression lexes src and returns a JavaScript string expression that
// rebuilds it, with asset references replaced by require() calls.
func cssExpression(src []byte) (string, error) {
	l := css.NewLexer(parse.NewInputBytes(src))

	var parts []string
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, jsString(lit.String()))
			lit.Reset()
		}
	}

	for {
		tt, data := l.Next()
		if tt == css.ErrorToken {
			if err := l.Err(); err != nil && err != io.EOF {
				return "", fmt.Errorf("parse css: %w", err)
			}
			break
		}
		if tt == css.BadURLToken || tt == css.BadStringToken {
			return "", fmt.Errorf("parse css: malformed %s %q", tt, data)
		}
		if tt != css.URLToken {
			lit.Write(data)
			continue
		}
		ref := urlTokenValue(data)
		request, fragment, ok := moduleRequest(ref)
		if !ok {
			lit.Write(data)
			continue
		}
		lit.WriteString("url(")
		flush()
		req := "require(" + jsString(request) + ")"
		if fragment != "" {
			req += " + " + jsString(fragment)
		}
		parts = append(parts, "JSON.stringify("+req+")")
		lit.WriteString(")")
	}
	flush()
	if len(parts) == 0 {
		return `""`, nil
	}
	return strings.Join(parts, " + "), nil
}

// urlTokenValue extracts the reference from a url(...) token.
func urlTokenValue(tok []byte) string {
	s := string(tok)
	if i := strings.IndexByte(s, '('); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(s, ")")
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	return s
}

// moduleRequest converts a stylesheet reference into a module request.
// Absolute URLs, data URIs, root-relative paths and pure fragments are left
// to the browser.
func moduleRequest(ref string) (request, fragment string, ok bool) {
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "/") {
		return "", "", false
	}
	lower := strings.ToLower(ref)
	for _, scheme := range []string{"data:", "http:", "https:", "//"} {
		if strings.HasPrefix(lower, scheme) {
			return "", "", false
		}
	}
	if i := strings.IndexByte(ref, '#'); i >= 0 {
		ref, fragment = ref[:i], ref[i:]
		// "font.eot?#iefix" keeps the bare "?" out of the request.
		if strings.HasSuffix(ref, "?") {
			ref = strings.TrimSuffix(ref, "?")
			fragment = "?" + fragment
		}
	}
	switch {
	case strings.HasPrefix(ref, "~"):
		request = ref[1:]
	case strings.HasPrefix(ref, "./"), strings.HasPrefix(ref, "../"):
		request = ref
	default:
		request = "./" + ref
	}
	return request, fragment, true
}
