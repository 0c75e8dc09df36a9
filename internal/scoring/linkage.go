package scoring

import (
	"regexp"
	"strings"
)

// Linkage is the normalized technical-indicator signal for a text, in [0,1].
type Linkage struct {
	Score   float64
	Reasons []string
}

var (
	ttpPattern     = regexp.MustCompile(`\bT\d{4}(?:\.\d{3})?\b`)
	ipv4Pattern    = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	hashPattern    = regexp.MustCompile(`\b(?:[a-fA-F0-9]{64}|[a-fA-F0-9]{40}|[a-fA-F0-9]{32})\b`)
	urlPattern     = regexp.MustCompile(`(?i)\bhttps?://[^\s"'<>]+|\b(?:[a-z0-9][a-z0-9-]*\.)+(?:com|net|org|io|info|biz|ru|cn|su|top|xyz|onion)\b`)
	clusterPattern = regexp.MustCompile(`\b(?:UNC\d{3,5}|APT\d{1,3}|FIN\d{1,3}|TA\d{3,4})\b`)
)

var attackVocabulary = []string{
	"command and control",
	"ransomware",
	"exfiltration",
	"lateral movement",
	"initial access",
	"phishing",
	"credential theft",
	"data leak site",
	"privilege escalation",
}

// LinkageSignal scores a text additively over six independent pattern
// families, capped at 1.0.
func LinkageSignal(text string) Linkage {
	var l Linkage
	add := func(weight float64, reason string) {
		l.Score += weight
		l.Reasons = append(l.Reasons, reason)
	}

	if ttpPattern.MatchString(text) {
		add(0.25, "ttp")
	}
	if ipv4Pattern.MatchString(text) {
		add(0.2, "ipv4")
	}
	if hashPattern.MatchString(text) {
		add(0.2, "hash")
	}
	if urlPattern.MatchString(text) {
		add(0.15, "url")
	}
	if clusterPattern.MatchString(text) {
		add(0.2, "cluster")
	}
	if ContainsAttackVocab(text) {
		add(0.1, "attack_vocab")
	}

	if l.Score > 1.0 {
		l.Score = 1.0
	}
	return l
}

// ContainsClusterLabel reports whether text carries an adversary cluster
// naming convention (UNC####, APT##, FIN##, TA###).
func ContainsClusterLabel(text string) bool {
	return clusterPattern.MatchString(text)
}

// ContainsAttackVocab reports whether text carries common attack vocabulary.
func ContainsAttackVocab(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range attackVocabulary {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
