// Package builtin provides config-driven guardrails that can be referenced
// by name from a pipeline file.
//
//	max-length     {max_chars}
//	max-tokens     {max_tokens, chars_per_token}
//	blocked-terms  {terms, case_sensitive, whole_word}
//	regex          {pattern, mode: deny|require}
//	pii            {types, redact}
//	rate-limit     {requests_per_minute, burst, tokens_per_minute, key: user|model|global}
//	token-budget   {hourly, daily, monthly, alert_threshold, key: user|model|global}
//	allowed-tools  {allow}
//
// Every guardrail also accepts severity, message, timeout, fail_open,
// priority and tags. Unknown keys fail the pipeline load.
package builtin
