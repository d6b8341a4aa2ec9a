// Package playground keeps a guest document compiled as it is edited.
//
// A [Session] owns one document and one guest front end. It re-syncs the text
// lazily, attaches quick fixes to diagnostics and filters completions by the
// typed prefix. A [Compiler] owns the active session for the selected guest
// language and output kind, and turns each compile into decompiled text or
// program output:
//
//	c, err := playground.NewCompiler(playground.WithLanguage(guest.Brace))
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	res, err := c.Process(ctx, `println("hello");`)
//	// res.Output == []string{"hello\n", "exit code 0"}
//
// Library-mode compiles that fail only because the source needs an entry
// point are retried once against a console-mode sibling session.
package playground
