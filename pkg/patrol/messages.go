package patrol

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	GuideDM     = "\n\n━━━━━━━━━━━━━━\n(役に立ったらリアクション「👍」を押してね！\n解決しなかったらそのまま返信してね💌)"
	GuidePublic = "\n\n━━━━━━━━━━━━━━\n(役に立ったらリアクション「👍」を押してね！\n解決しなかったらスレッドに返信してね📢)"

	EscalationReplyPublic = "わかったよ！担当者に連絡したよ📢\n担当者からメールで連絡するから、少し待っててね。"
	EscalationReplyDM     = "わかったよ！会話の履歴を担当者に送ったよ💌\n担当者からメールで連絡するから、少し待っててね。"

	SolvedReply = "解決してよかった！また頼ってね～！😸"
)

var gratitudeRe = regexp.MustCompile(`ありがとう|助かった|解決した|解決しました|解決です`)

// IsGratitude reports whether text reads as "thanks, solved".
func IsGratitude(text string) bool {
	return gratitudeRe.MatchString(text)
}

// StripGuides removes the reply footers the bot appends to its answers.
func StripGuides(text string) string {
	text = strings.Replace(text, GuideDM, "", 1)
	return strings.Replace(text, GuidePublic, "", 1)
}

func guideFor(direct bool) string {
	if direct {
		return GuideDM
	}
	return GuidePublic
}

func fallbackText(fallbackURL string) string {
	return "手元の資料には情報がなかったよ💦\n" +
		"情報システム部までお問い合わせください。\n\n" +
		"以下のシステム関連QAサイトも併せて確認してみてね！\n" +
		fallbackURL
}

func mention(userID string) string {
	return fmt.Sprintf("<@%s>", userID)
}

func adminNotice(userID, transcript string) string {
	return "🚨 *有人対応依頼* 🚨\n" +
		"依頼者: " + mention(userID) + "\n" +
		"状況: 解決せず問い合わせが来ました。\n\n" +
		"📝 *会話ログ*\n" +
		">>> " + transcript +
		"------------------\n" +
		"⚠️ " + mention(userID) + " さんへ連絡してください。\n"
}
