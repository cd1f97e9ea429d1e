package guardrail

import "regexp"

// Category classifies why a message was rejected.
type Category string

const (
	CategoryRateLimit           Category = "rate_limit"
	CategoryTooLong             Category = "too_long"
	CategoryEmpty               Category = "empty"
	CategoryInstructionOverride Category = "instruction_override"
	CategoryRoleHijack          Category = "role_hijack"
	CategorySystemTag           Category = "system_tag"
	CategoryPromptExtraction    Category = "prompt_extraction"
	CategoryEncoding            Category = "encoding"
	CategoryInjection           Category = "injection"
	CategorySpecialChars        Category = "special_chars"
	CategoryFlooding            Category = "flooding"

	CategoryLeak          Category = "leak"
	CategoryPII           Category = "pii"
	CategoryInternalError Category = "internal_error"
	CategoryUnsafe        Category = "unsafe"
)

// Pattern is one row of a policy table.
type Pattern struct {
	Category Category
	Expr     *regexp.Regexp
}

func rule(c Category, expr string) Pattern {
	return Pattern{Category: c, Expr: regexp.MustCompile(`(?i)` + expr)}
}

// InputPolicy lists the adversarial phrasings rejected on inbound messages.
// Patterns are matched against sanitized text.
var InputPolicy = []Pattern{
	rule(CategoryInstructionOverride, `\b(ignore|forget|disregard|override)\s+(all\s+)?(the\s+|your\s+)?(previous|above|prior|earlier|all|your)\s+(instructions?|prompts?|rules|directions)`),
	rule(CategoryInstructionOverride, `\b(ignore|ignora|esque[çc]a|desconsidere|desconsidera)\s+(todas\s+)?(as\s+|suas\s+)?(instru[çc][õo]es|regras|ordens)`),
	rule(CategoryInstructionOverride, `\bnew\s+instructions?\s*:`),
	rule(CategoryInstructionOverride, `\bnovas\s+instru[çc][õo]es\s*:`),

	rule(CategoryRoleHijack, `\byou\s+are\s+now\b`),
	rule(CategoryRoleHijack, `\bfrom\s+now\s+on\s+(you|act|respond)`),
	rule(CategoryRoleHijack, `\b(act|behave)\s+as\s+(an?\s+)?(admin|administrator|developer|system|root)\b`),
	rule(CategoryRoleHijack, `\bpretend\s+(to\s+be|you\s+are)\b`),
	rule(CategoryRoleHijack, `\bvoc[êe]\s+(agora\s+)?[ée]\s+(um|uma|o|a)\s+(admin|administrador|desenvolvedor|sistema|hacker)\b`),
	rule(CategoryRoleHijack, `\ba\s+partir\s+de\s+agora\s+(voc[êe]|aja|responda|seja)`),
	rule(CategoryRoleHijack, `\b(finja|fingir)\s+(ser|que)\b`),
	rule(CategoryRoleHijack, `\b(dan|developer|god|debug)\s+mode\b`),
	rule(CategoryRoleHijack, `\bmodo\s+(desenvolvedor|deus|debug|admin)\b`),
	rule(CategoryRoleHijack, `\bjailbreak`),

	rule(CategorySystemTag, `\[\s*(system|assistant|sistema|inst)\s*\]`),
	rule(CategorySystemTag, `\b(system|assistant|sistema)\s*:`),

	rule(CategoryPromptExtraction, `\b(show|reveal|print|tell|give|repeat)\s+(me\s+)?(your|the)\s+(system\s+)?(prompt|instructions|rules|configuration)`),
	rule(CategoryPromptExtraction, `\bwhat\s+(are|were)\s+your\s+(instructions|rules|prompt)`),
	rule(CategoryPromptExtraction, `\b(mostre|mostra|revele|revela|diga|repita)\s+(me\s+)?(o\s+|a\s+|as\s+)?(seu|sua|suas|teu|tua)\s+(prompt|instru[çc][ãa]o|instru[çc][õo]es|regras|configura[çc][ãa]o)`),
	rule(CategoryPromptExtraction, `\bqua(l|is)\s+(é|e|s[ãa]o)\s+(o\s+|a\s+|as\s+)?(seu|sua|suas)\s+(prompt|instru[çc][õo]es|regras)`),
	rule(CategoryPromptExtraction, `\bsystem\s+prompt\b|\bprompt\s+do\s+sistema\b`),

	rule(CategoryEncoding, `\bbase\s?64\b`),
	rule(CategoryEncoding, `\\x[0-9a-f]{2}`),
	rule(CategoryEncoding, `\\u[0-9a-f]{4}`),
	rule(CategoryEncoding, `(^|[^0-9])%[0-9a-f]{2}`),
	rule(CategoryEncoding, `\b(decode|decodifique|decodifica|rot13)\b`),

	rule(CategoryInjection, `;\s*(drop|delete|insert|update|alter)\s+`),
	rule(CategoryInjection, `\bunion\s+(all\s+)?select\b`),
	rule(CategoryInjection, `\$\{[^}]*\}|\{\{[^}]*\}\}`),
}

// MarkupPolicy is matched against the raw message, since sanitizing strips
// the markup it looks for.
var MarkupPolicy = []Pattern{
	rule(CategorySystemTag, `<\|?\s*(im_start|im_end|system|assistant|endoftext)\s*\|?>`),
}

// OutputPolicy lists content that must never reach the customer.
var OutputPolicy = []Pattern{
	rule(CategoryLeak, `\bas\s+an\s+(ai|a\.i\.|language\s+model)\b`),
	rule(CategoryLeak, `\b(como|sou)\s+(uma?\s+)?(ia|intelig[êe]ncia\s+artificial|modelo\s+de\s+linguagem)\b`),
	rule(CategoryLeak, `\b(language\s+model|modelo\s+de\s+linguagem)\b`),
	rule(CategoryLeak, `\b(system\s+prompt|prompt\s+do\s+sistema)\b`),
	rule(CategoryLeak, `\b(my|minhas)\s+(instructions|instru[çc][õo]es)\b`),
	rule(CategoryLeak, `\b(i\s+am|i'm)\s+programmed\b|\bfui\s+programad[oa]\b`),
	rule(CategoryLeak, `\b(openai|chatgpt|gpt-\d|anthropic|claude|gemini|llama)\b`),

	rule(CategoryPII, `\b\d{3}\.?\d{3}\.?\d{3}-?\d{2}\b`),

	rule(CategoryInternalError, `\b(error|exception|traceback|stack\s*trace|undefined|null\s*pointer|nil\s+pointer|panic|goroutine|segfault)\b`),
	rule(CategoryInternalError, `\b(sql|syntax)\s+error\b|\bpq:\s`),

	rule(CategoryUnsafe, `\b(kill|murder|steal|launder|scam)\b`),
	rule(CategoryUnsafe, `\b(matar|roubar|lavagem\s+de\s+dinheiro|adulterar\s+chassi)\b`),
}

// Customer-facing rejection messages per category.
var rejectionMessages = map[Category]string{
	CategoryRateLimit:    "Você está enviando mensagens muito rápido. Aguarde um minuto e tente novamente.",
	CategoryTooLong:      "Sua mensagem ficou muito longa. Pode resumir em poucas frases?",
	CategoryEmpty:        "Não recebi nenhum texto. Como posso te ajudar a encontrar um carro?",
	CategorySpecialChars: "Não consegui entender sua mensagem. Pode escrever de outro jeito?",
	CategoryFlooding:     "Não consegui entender sua mensagem. Pode escrever de outro jeito?",
}

const defaultRejection = "Desculpe, não posso ajudar com isso. Vamos falar sobre o carro ideal para você?"

func rejectionMessage(c Category) string {
	if msg, ok := rejectionMessages[c]; ok {
		return msg
	}
	return defaultRejection
}
