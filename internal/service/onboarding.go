package service

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"carmatch/internal/model"
)

const (
	greetingWelcome = "Olá! 😊 Bem-vindo! Sou especialista em seminovos e vou te ajudar a encontrar o carro ideal."
	greetingNamed   = "Olá, %s! 😊 Prazer em te conhecer. Vou te ajudar a encontrar o carro ideal."

	maxNameLength = 30
)

// nameRe captures the first name from self-introductions.
var nameRe = regexp.MustCompile(`(?i)\b(?:meu nome (?:é|e)|me chamo|pode me chamar de|aqui (?:é|e) (?:o|a)|my name is|call me)\s+(\p{L}+)`)

// ExtractCustomerName finds the customer's first name in a message, or nil.
func ExtractCustomerName(text string) *string {
	m := nameRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	name := m[1]
	if n := utf8.RuneCountInString(name); n < 2 || n > maxNameLength {
		return nil
	}
	r, size := utf8.DecodeRuneInString(name)
	name = string(unicode.ToUpper(r)) + strings.ToLower(name[size:])
	return &name
}

// Greeting opens a conversation, addressing the customer by name when known.
func Greeting(p model.CustomerProfile) string {
	if p.CustomerName != nil {
		return fmt.Sprintf(greetingNamed, *p.CustomerName)
	}
	return greetingWelcome
}

func withGreeting(p model.CustomerProfile, reply string) string {
	return Greeting(p) + "\n\n" + reply
}
