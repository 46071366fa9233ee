package domain

// MaxPerItem is the highest answer value accepted for a single question.
const MaxPerItem = 5

// Question is a single rubric prompt. Position within its catalog aligns it with answer arrays.
type Question struct {
	ID       string
	Category string
	Text     string
}

// QuestionCategory groups related questions for display.
type QuestionCategory struct {
	ID    string
	Title string
}

var commonQuestions = []Question{
	{ID: "c1a", Category: "c1", Text: "Is the counterpart's purpose clear?"},
	{ID: "c1b", Category: "c1", Text: "Would the project stall without us?"},
	{ID: "c1c", Category: "c1", Text: "Does the partner see us as an equal partner?"},
	{ID: "c2a", Category: "c2", Text: "Are our inputs (money, time, effort) balanced with theirs?"},
	{ID: "c2b", Category: "c2", Text: "Does our name remain on the deliverables?"},
	{ID: "c2c", Category: "c2", Text: "Is the outcome a mutual win-win?"},
	{ID: "c3a", Category: "c3", Text: "Does the contract or MoU state rights and ownership?"},
	{ID: "c3b", Category: "c3", Text: "Is cost and profit sharing agreed in writing?"},
	{ID: "c3c", Category: "c3", Text: "Are responsibilities and rights on early exit documented?"},
	{ID: "c4a", Category: "c4", Text: "Are there past results or references?"},
	{ID: "c4b", Category: "c4", Text: "Can their network and influence actually be verified?"},
	{ID: "c4c", Category: "c4", Text: "Can they execute to the end?"},
	{ID: "c5a", Category: "c5", Text: "Is there a minimum asset we keep if things go wrong?"},
	{ID: "c5b", Category: "c5", Text: "Does the contract include withdrawal or termination clauses?"},
	{ID: "c5c", Category: "c5", Text: "Do we gain something even if it fails?"},
}

var overseasQuestions = []Question{
	{ID: "oAa", Category: "oA", Text: "Are contracts legally enforceable locally?"},
	{ID: "oAb", Category: "oA", Text: "Are government and institution relations stable?"},
	{ID: "oBa", Category: "oB", Text: "Are key agreements always recorded in bilingual documents?"},
	{ID: "oBb", Category: "oB", Text: "Is a local advisor or broker secured to reduce cultural misunderstandings?"},
	{ID: "oCa", Category: "oC", Text: "Does the partner actually hold execution funds?"},
	{ID: "oCb", Category: "oC", Text: "Was it confirmed the structure is sustainable rather than a one-off event?"},
	{ID: "oDa", Category: "oD", Text: "Can a replacement partner be secured if problems arise?"},
	{ID: "oDb", Category: "oD", Text: "Can assets left locally (technology, data, content) be recovered?"},
}

var questionCategories = []QuestionCategory{
	{ID: "c1", Title: "Purpose and dependency"},
	{ID: "c2", Title: "Balance of contribution"},
	{ID: "c3", Title: "Written agreements"},
	{ID: "c4", Title: "Track record and capability"},
	{ID: "c5", Title: "Downside protection"},
	{ID: "oA", Title: "Legal and political environment"},
	{ID: "oB", Title: "Communication and culture"},
	{ID: "oC", Title: "Financial substance"},
	{ID: "oD", Title: "Exit and recovery"},
}

// CommonQuestions returns a copy of the questions asked for every partner.
func CommonQuestions() []Question {
	return append([]Question(nil), commonQuestions...)
}

// OverseasQuestions returns a copy of the additional questions asked for overseas partners.
func OverseasQuestions() []Question {
	return append([]Question(nil), overseasQuestions...)
}

// QuestionCategories lists category headings in display order.
func QuestionCategories() []QuestionCategory {
	return append([]QuestionCategory(nil), questionCategories...)
}

// CommonQuestionCount is the number of answers expected in an evaluation's common set.
func CommonQuestionCount() int { return len(commonQuestions) }

// OverseasQuestionCount is the number of answers expected in an evaluation's overseas set.
func OverseasQuestionCount() int { return len(overseasQuestions) }

// QuestionsFor returns the full ordered catalog asked for the scope.
func QuestionsFor(scope PartnerScope) []Question {
	out := CommonQuestions()
	if scope == ScopeOverseas {
		out = append(out, overseasQuestions...)
	}
	return out
}
