// Package classify turns a comment into a moderation decision: an intent,
// an ordered list of actions, and optional reply text. The rule-based
// classifier is the always-available baseline; an LLM classifier can be
// layered on top and falls back to the rules on any failure.
package classify

import (
	"strings"

	"github.com/vuxmai/fankeeper/fanpage"
)

// Intent is the classified purpose of a comment.
type Intent string

const (
	IntentAskPrice     Intent = "ask_price"
	IntentInterest     Intent = "interest"
	IntentSpam         Intent = "spam"
	IntentAbuse        Intent = "abuse"
	IntentMissingPhone Intent = "missing_phone"
	IntentUnknown      Intent = "unknown"
)

// Action is one moderation step to execute, in decision order.
type Action string

const (
	ActionReply     Action = "reply"
	ActionHide      Action = "hide"
	ActionOpenInbox Action = "open_inbox"
)

// Decision is the classifier's verdict for one comment.
type Decision struct {
	Intent     Intent
	Actions    []Action
	ReplyText  string
	Confidence float64
	Rationale  string
}

// Classifier maps a comment to a Decision. Implementations must not fail:
// an undecidable comment classifies as unknown.
type Classifier interface {
	Classify(comment fanpage.Comment) Decision
}

// keyword table for the rule-based classifier. Matching is first-hit in a
// fixed priority order so abuse outranks the weaker intents.
var keywordOrder = []Intent{IntentAbuse, IntentSpam, IntentAskPrice, IntentInterest, IntentMissingPhone}

var keywords = map[Intent][]string{
	IntentAskPrice:     {"bao nhiêu", "giá", "gia", "bn", "nhiu"},
	IntentInterest:     {"quan tâm", "tư vấn", "mua", "đặt", "đăt", "shop đâu"},
	IntentSpam:         {"http://", "https://", "cho vay", "săn sale"},
	IntentAbuse:        {"lừa", "scam", "đm", "dkm", "địt"},
	IntentMissingPhone: {"ib", "inbox", "sdt", "sđt", "phone", "call"},
}

// Heuristic is the rule-based classifier.
type Heuristic struct{}

func (Heuristic) Classify(comment fanpage.Comment) Decision {
	intent, confidence, rationale := matchKeywords(comment.Message)
	return decide(intent, confidence, rationale, comment)
}

func matchKeywords(message string) (Intent, float64, string) {
	text := strings.ToLower(message)
	for _, intent := range keywordOrder {
		for _, w := range keywords[intent] {
			if strings.Contains(text, w) {
				return intent, 0.78, "match " + string(intent)
			}
		}
	}
	if len([]rune(strings.TrimSpace(text))) <= 2 {
		return IntentSpam, 0.6, "very short"
	}
	return IntentUnknown, 0.4, "fallback"
}

// decide maps an intent to its action list and reply text.
func decide(intent Intent, confidence float64, rationale string, comment fanpage.Comment) Decision {
	actions := []Action{ActionReply}
	switch intent {
	case IntentSpam, IntentAbuse:
		actions = []Action{ActionHide}
	case IntentMissingPhone:
		actions = []Action{ActionOpenInbox, ActionReply}
	}
	return Decision{
		Intent:     intent,
		Actions:    actions,
		ReplyText:  replyFor(intent, comment),
		Confidence: confidence,
		Rationale:  rationale,
	}
}

func replyFor(intent Intent, comment fanpage.Comment) string {
	name := comment.Author
	if name == "" {
		name = "bạn"
	}
	switch intent {
	case IntentAskPrice:
		return "Chào " + name + ", giá sản phẩm đang ưu đãi. " +
			"Bạn cho mình xin số điện thoại hoặc để lại tin nhắn để tư vấn nhanh nhé!"
	case IntentInterest:
		return "Cảm ơn " + name + " đã quan tâm! " +
			"Bạn để lại SĐT/inbox để mình hỗ trợ chọn mẫu và báo giá chi tiết."
	case IntentMissingPhone:
		return "Mình đã mở inbox cho bạn, vui lòng check tin nhắn để được hỗ trợ nhanh."
	case IntentSpam, IntentAbuse:
		return ""
	}
	return "Cảm ơn bạn đã để lại bình luận! Bạn cần thêm thông tin nào cứ nhắn mình nhé."
}
