// Package pipeline resolves declarative guardrail configurations into
// runnable stages.
//
// A pipeline file names guardrails per stage; names resolve through a
// Registry of factories, and each entry's config is passed to its factory
// untouched:
//
//	version: 1
//	input:
//	  version: 1
//	  guardrails:
//	    - name: max-length
//	      config: {max_chars: 4000}
//	output:
//	  version: 1
//	  guardrails:
//	    - name: blocked-terms
//	      config: {terms: [internal-only]}
//
// # Loading
//
// Load accepts a *Config, a Config, a map or JSON; LoadFile reads JSON or
// YAML files. Both reject unsupported versions, unknown stages and unknown
// guardrail names, reporting all of them in one
// *guardrails.ConfigurationError.
//
// # Running
//
//	p, err := pipeline.FromFile("guardrails.yaml", registry)
//	res, err := p.CheckPlainText(ctx, "some text")
//	if res.Blocked { ... }
//
// # Hot Reload
//
// A Watcher reloads the file on change, debounced, and swaps the new
// Pipeline into a Reloadable. Invalid edits are logged and ignored.
package pipeline
