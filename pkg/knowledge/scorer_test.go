package knowledge

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywords(t *testing.T) {
	s := NewScorer(0, 0, nil)

	assert.Equal(t, []string{"vpn", "接続", "できない"}, s.Keywords("ＶＰＮ接続できない"))
	assert.Equal(t, []string{"パスワード", "リセット"}, s.Keywords("パスワード リセットの方法"))
	assert.Empty(t, s.Keywords("です"))
	assert.Empty(t, s.Keywords("？！"))
}

func TestScoreScenario(t *testing.T) {
	s := NewScorer(0, 0, nil)
	kw := s.Keywords("VPN接続できない")

	vpn := Item{Kind: KindQA, Category: "VPN", Question: "VPN接続の手順"}
	assert.Equal(t, 90, Score(vpn, kw))

	unrelated := Item{Kind: KindQA, Category: "経費", Question: "交通費の精算"}
	assert.Equal(t, 0, Score(unrelated, kw))

	ranked := s.Rank([]Item{unrelated, vpn}, "VPN接続できない")
	require.Len(t, ranked, 1)
	assert.Equal(t, vpn, ranked[0].Item)
}

func TestScoreWeightsAccumulatePerKeyword(t *testing.T) {
	kw := []string{"vpn", "証明書"}
	it := Item{Category: "VPN", Tags: "VPN", Question: "VPN証明書の更新", Point: "証明書を再発行"}
	// vpn: cat 50 + tag 15 + question 20; 証明書: question 20 + answer 5
	assert.Equal(t, 110, Score(it, kw))
}

func TestCodedQuestionBonus(t *testing.T) {
	coded := Item{Question: "123456 プリンタ設定"}
	assert.Equal(t, 10, Score(coded, []string{"無関係"}))
	assert.Equal(t, 0, Score(Item{Question: "12345 プリンタ"}, []string{"無関係"}))
}

func TestRankIsStableAndBounded(t *testing.T) {
	var items []Item
	for i := 0; i < 20; i++ {
		items = append(items, Item{Category: "メール", Question: fmt.Sprintf("メール設定 %02d", i)})
	}
	s := NewScorer(15, 0, nil)
	ranked := s.Rank(items, "メール")
	require.Len(t, ranked, 15)
	for i, r := range ranked {
		assert.Equal(t, fmt.Sprintf("メール設定 %02d", i), r.Item.Question)
	}
}

func TestBuildContextFormatsBlocks(t *testing.T) {
	s := NewScorer(0, 0, nil)
	items := []Item{
		{Category: "VPN", Question: "VPN接続", Point: "再起動", Action: "設定を開く", Note: "在宅時のみ", URL: "https://wiki/vpn"},
		{Category: "VPN", Question: "VPN申請"},
	}
	got, ok := s.BuildContext(items, "VPN")
	require.True(t, ok)
	want := "・[VPN接続](https://wiki/vpn)\n" +
		"  - 要点: 再起動\n" +
		"  - 手順: 設定を開く\n" +
		"  - 補足: 在宅時のみ\n" +
		"\n" +
		"・VPN申請"
	assert.Equal(t, want, got)
}

func TestBuildContextDeduplicatesURLs(t *testing.T) {
	s := NewScorer(0, 0, nil)
	items := []Item{
		{Category: "VPN", Question: "VPN接続 A", URL: "https://wiki/vpn"},
		{Category: "VPN", Question: "VPN接続 B", URL: "https://wiki/vpn"},
		{Category: "VPN", Question: "VPN接続 C", URL: "https://wiki/vpn2"},
	}
	got, ok := s.BuildContext(items, "VPN")
	require.True(t, ok)
	assert.Equal(t, 1, strings.Count(got, "(https://wiki/vpn)"))
	assert.NotContains(t, got, "VPN接続 B")
	assert.Contains(t, got, "VPN接続 C")
}

func TestBuildContextRespectsBudgetAndIsDeterministic(t *testing.T) {
	var items []Item
	for i := 0; i < 15; i++ {
		items = append(items, Item{
			Category: "ネットワーク",
			Question: fmt.Sprintf("ネットワーク障害 %d", i),
			Point:    strings.Repeat("確認", 40),
		})
	}
	s := NewScorer(15, 300, nil)

	first, ok := s.BuildContext(items, "ネットワーク")
	require.True(t, ok)
	assert.LessOrEqual(t, utf8.RuneCountInString(first), 300)
	// the overflowing block is dropped whole, never truncated
	assert.True(t, strings.HasSuffix(first, strings.Repeat("確認", 40)))

	for i := 0; i < 5; i++ {
		again, _ := s.BuildContext(items, "ネットワーク")
		assert.Equal(t, first, again)
	}
}

func TestBuildContextEmpty(t *testing.T) {
	s := NewScorer(0, 0, nil)
	_, ok := s.BuildContext([]Item{{Category: "VPN", Question: "VPN"}}, "です")
	assert.False(t, ok)

	_, ok = s.BuildContext(nil, "VPN")
	assert.False(t, ok)
}
