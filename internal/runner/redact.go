package runner

import (
	"regexp"
	"strings"
)

// secretPatterns match credential formats course scripts commonly carry in
// their environment and sometimes echo in error output.
var secretPatterns = []*regexp.Regexp{
	// Anthropic keys: sk-ant-... (before the generic sk- rule)
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-_]{20,}`),
	// OpenAI keys: sk-... (including sk-proj-...)
	regexp.MustCompile(`sk-[a-zA-Z0-9\-_]{20,}`),
	// GitHub tokens, also used for GitHub Models
	regexp.MustCompile(`ghp_[a-zA-Z0-9]{36,}`),
	regexp.MustCompile(`gho_[a-zA-Z0-9]{36,}`),
	regexp.MustCompile(`github_pat_[a-zA-Z0-9_]{22,}`),
	// Google API keys
	regexp.MustCompile(`AIza[0-9A-Za-z\-_]{35}`),
	// Hugging Face tokens
	regexp.MustCompile(`hf_[a-zA-Z0-9]{30,}`),
	// AWS access keys
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	// Bearer tokens
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9\-_.]{20,}`),
}

// envKeyValuePattern matches KEY=VALUE lines for sensitive variable names,
// as printed when a script dumps its environment.
var envKeyValuePattern = regexp.MustCompile(
	`(?im)^(?:declare -x |export )?` +
		`(OPENAI_\w*|AZURE_OPENAI_\w*|ANTHROPIC_\w*|GITHUB_TOKEN|HF_TOKEN|API_KEY|API_SECRET|AWS_SECRET\w*)` +
		`[= ].*$`,
)

const redactPlaceholder = "[REDACTED]"

// Redact returns text with credentials replaced and the number of
// replacements made.
func Redact(text string) (string, int) {
	count := 0
	result := text
	for _, re := range secretPatterns {
		if matches := re.FindAllString(result, -1); len(matches) > 0 {
			count += len(matches)
			result = re.ReplaceAllString(result, redactPlaceholder)
		}
	}

	if matches := envKeyValuePattern.FindAllString(result, -1); len(matches) > 0 {
		count += len(matches)
		result = envKeyValuePattern.ReplaceAllString(result, redactPlaceholder)
	}

	for strings.Contains(result, redactPlaceholder+"\n"+redactPlaceholder) {
		result = strings.ReplaceAll(result, redactPlaceholder+"\n"+redactPlaceholder, redactPlaceholder)
	}
	return result, count
}
