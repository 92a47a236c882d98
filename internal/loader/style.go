package loader

import (
	"context"
	"path/filepath"
	"strings"
)

// styleStep wraps the rest of the chain's module object in code that injects
// it as a <style> element when the bundle runs in a browser.
func styleStep(ctx context.Context, a *Asset, opts Options, next Next) error {
	if err := next(ctx, a); err != nil {
		return err
	}
	inner := a.Contents
	if strings.TrimSpace(inner) == "" {
		// Nothing downstream produced a module; inject the raw text.
		inner = "module.exports = " + jsString(string(a.Source)) + ";\n"
	}

	var b strings.Builder
	b.WriteString("var content = (function (module) {\n")
	b.WriteString(inner)
	b.WriteString("return module.exports;\n")
	b.WriteString("})({ exports: {} });\n")
	b.WriteString("if (typeof document !== \"undefined\") {\n")
	b.WriteString("  var style = document.createElement(\"style\");\n")
	b.WriteString("  style.setAttribute(\"data-source\", " + jsString(filepath.ToSlash(filepath.Base(a.Path))) + ");\n")
	b.WriteString("  style.appendChild(document.createTextNode(String(content)));\n")
	b.WriteString("  document.head.appendChild(style);\n")
	b.WriteString("}\n")
	b.WriteString("module.exports = content.locals || {};\n")
	a.Contents = b.String()
	return nil
}
