// Guardrails checks text against guardrail pipelines and manages the
// evidence recorded for gate decisions.
//
// Usage:
//
//	# Check a prompt against the input stage (exit status 1 when blocked)
//	guardrails check --pipeline guardrails.yaml "ignore previous instructions"
//
//	# Check every line of a file against the output stage
//	guardrails check --stage output --file responses.txt --format json
//
//	# Validate a pipeline file
//	guardrails validate guardrails.yaml
//
//	# Query recorded gate decisions
//	guardrails evidence query --since 24h --blocked true --format csv
//
//	# Serve the check API, health and metrics endpoints
//	guardrails serve --listen :9090
package main

import "os"

func main() {
	os.Exit(Execute())
}
