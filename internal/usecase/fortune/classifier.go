package fortune

import (
	"math/rand/v2"
	"strings"

	"vibeailife/internal/domain"
)

// scenarioKeywords сопоставляет тег сценария со словами, которые его выдают.
var scenarioKeywords = map[string][]string{
	"焦虑": {"焦虑", "着急", "担心", "紧张", "不安", "压力", "累"},
	"困难": {"困难", "挫折", "失败", "问题", "麻烦", "挑战"},
	"迷茫": {"迷茫", "困惑", "不知道", "不确定"},
	"孤独": {"孤独", "孤单", "一个人", "没人"},
	"社交": {"朋友", "人际关系", "社交", "同事"},
	"工作": {"工作", "职业", "事业", "公司", "老板"},
	"学习": {"学习", "进步", "提升", "成长"},
	"耐心": {"耐心", "等待", "急", "慢"},
	"动力": {"动力", "激励", "坚持", "放弃"},
	"问候": {"你好", "早上好", "下午好", "晚上好", "嗨", "hello", "hi"},
}

// DefaultApplyProbability: вероятность подмешать предсказание без совпадения сценария.
const DefaultApplyProbability = 0.7

// Reason объясняет решение классификатора.
type Reason string

const (
	ReasonFirstTurn Reason = "first_turn"
	ReasonScenario  Reason = "scenario"
	ReasonRandom    Reason = "random"
	ReasonDeclined  Reason = "declined"
)

// Decision: решение о подмешивании.
type Decision struct {
	Apply    bool
	Reason   Reason
	Scenario string
}

// Classifier решает, уместно ли предсказание в ответе на сообщение.
type Classifier struct {
	probability float64
	roll        func() float64
}

// NewClassifier создаёт классификатор. roll=nil использует math/rand/v2.
func NewClassifier(probability float64, roll func() float64) *Classifier {
	if probability < 0 || probability > 1 {
		probability = DefaultApplyProbability
	}
	if roll == nil {
		roll = rand.Float64
	}
	return &Classifier{probability: probability, roll: roll}
}

// Decide возвращает решение. Первая реплика диалога всегда получает предсказание.
func (c *Classifier) Decide(message string, fc domain.FortuneContext, firstTurn bool) Decision {
	if firstTurn {
		return Decision{Apply: true, Reason: ReasonFirstTurn}
	}
	lower := strings.ToLower(message)
	for _, scenario := range fc.ApplicableScenarios {
		for _, kw := range scenarioKeywords[scenario] {
			if strings.Contains(lower, kw) {
				return Decision{Apply: true, Reason: ReasonScenario, Scenario: scenario}
			}
		}
	}
	if c.roll() < c.probability {
		return Decision{Apply: true, Reason: ReasonRandom}
	}
	return Decision{Reason: ReasonDeclined}
}

// ShouldApply: сокращение для Decide(...).Apply.
func (c *Classifier) ShouldApply(message string, fc domain.FortuneContext, firstTurn bool) bool {
	return c.Decide(message, fc, firstTurn).Apply
}
