// Package chatbot answers farmer questions from a fixed table of keyword
// rules. Replies are translation keys resolved in the current language.
package chatbot

import (
	"strings"
)

const (
	GreetingKey = "chat.greeting"
	FallbackKey = "chat.fallback"
)

// Translator resolves a translation key. *preferences.Store satisfies it.
type Translator interface {
	T(key string) string
}

// Rule answers with Reply when the message contains any of Keywords.
type Rule struct {
	Keywords []string
	Reply    string
}

// DefaultRules is checked in order; the first match wins.
func DefaultRules() []Rule {
	return []Rule{
		{Keywords: []string{"weather", "rain", "forecast", "मौसम", "बारिश"}, Reply: "chat.weather"},
		{Keywords: []string{"price", "market", "mandi", "sell", "भाव", "मंडी"}, Reply: "chat.market"},
		{Keywords: []string{"pest", "insect", "disease", "leaf", "कीट", "रोग"}, Reply: "chat.pest"},
		{Keywords: []string{"fertilizer", "fertiliser", "urea", "manure", "खाद"}, Reply: "chat.fertilizer"},
		{Keywords: []string{"irrigation", "water", "drip", "सिंचाई", "पानी"}, Reply: "chat.irrigation"},
		{Keywords: []string{"soil", "मिट्टी"}, Reply: "chat.soil"},
		{Keywords: []string{"scheme", "subsidy", "loan", "insurance", "pm-kisan", "योजना"}, Reply: "chat.scheme"},
		{Keywords: []string{"thank", "dhanyavad", "धन्यवाद", "shukriya"}, Reply: "chat.thanks"},
		{Keywords: []string{"hello", "hey", "namaste", "namaskar", "नमस्ते"}, Reply: GreetingKey},
	}
}

type Bot struct {
	rules []Rule
	tr    Translator
}

// New builds a bot over rules, or DefaultRules when none are given.
func New(tr Translator, rules ...Rule) *Bot {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Bot{rules: rules, tr: tr}
}

func (b *Bot) Greeting() string {
	return b.tr.T(GreetingKey)
}

// Reply answers message in the translator's language.
func (b *Bot) Reply(message string) string {
	return b.tr.T(Match(b.rules, message))
}

// Match returns the reply key of the first rule with a keyword contained in
// message, ignoring case. It returns FallbackKey when nothing matches.
func Match(rules []Rule, message string) string {
	msg := strings.ToLower(strings.TrimSpace(message))
	if msg == "" {
		return FallbackKey
	}
	for _, r := range rules {
		for _, kw := range r.Keywords {
			if kw != "" && strings.Contains(msg, strings.ToLower(kw)) {
				return r.Reply
			}
		}
	}
	return FallbackKey
}
