package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinkageSignal_HashIPAndVocab(t *testing.T) {
	text := "Dropper MD5 d41d8cd98f00b204e9800998ecf8427e beaconed to 10.20.30.40 " +
		"for command and control"

	l := LinkageSignal(text)

	assert.InDelta(t, 0.5, l.Score, 1e-9)
	assert.ElementsMatch(t, []string{"ipv4", "hash", "attack_vocab"}, l.Reasons)
}

func TestLinkageSignal_TTP(t *testing.T) {
	l := LinkageSignal("Execution via T1059.003 was observed")

	assert.InDelta(t, 0.25, l.Score, 1e-9)
	assert.Equal(t, []string{"ttp"}, l.Reasons)
}

func TestLinkageSignal_ClusterLabel(t *testing.T) {
	l := LinkageSignal("Attributed to APT29 with moderate confidence")

	assert.InDelta(t, 0.2, l.Score, 1e-9)
	assert.Equal(t, []string{"cluster"}, l.Reasons)
}

func TestLinkageSignal_CappedAtOne(t *testing.T) {
	text := "UNC3944 used T1566 phishing, dropped " +
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855, " +
		"beaconed to 192.0.2.15 via hxxp rewritten as https://bad.example.com/c2"

	l := LinkageSignal(text)

	assert.Equal(t, 1.0, l.Score)
	assert.GreaterOrEqual(t, len(l.Reasons), 5)
}

func TestLinkageSignal_PlainText(t *testing.T) {
	l := LinkageSignal("The weather was pleasant this weekend")

	assert.Equal(t, 0.0, l.Score)
	assert.Empty(t, l.Reasons)
}

func TestContainsClusterLabel(t *testing.T) {
	assert.True(t, ContainsClusterLabel("tracked as UNC3944"))
	assert.True(t, ContainsClusterLabel("FIN7 resurfaces"))
	assert.True(t, ContainsClusterLabel("TA505 campaign"))
	assert.False(t, ContainsClusterLabel("APARTMENT9 is not a cluster"))
	assert.False(t, ContainsClusterLabel("no indicators here"))
}

func TestContainsAttackVocab(t *testing.T) {
	assert.True(t, ContainsAttackVocab("observed Lateral Movement across hosts"))
	assert.False(t, ContainsAttackVocab("the quarterly report"))
}
