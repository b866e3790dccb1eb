// Package cli holds the command-line plumbing shared by speakerid commands:
// kubectl-style contexts stored under ~/.giztoy/<app>/, output in YAML, JSON
// or raw form with optional jq filtering, manifest loading, and terminal
// rendering of recognition results.
//
// Example usage:
//
//	cfg, err := cli.LoadConfigWithPath("speakerid", "")
//	ctx, err := cfg.ResolveContext("")
//
//	cli.Output(result, cli.OutputOptions{
//	    Format: cli.FormatJSON,
//	    Query:  ".prediction.ranked_matches[0]",
//	})
package cli
