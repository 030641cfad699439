package domain

import "strings"

type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// ParsePlan normaliza o plano vindo da sessão; qualquer valor desconhecido vira free.
func ParsePlan(raw string) Plan {
	if strings.EqualFold(strings.TrimSpace(raw), string(PlanPro)) {
		return PlanPro
	}
	return PlanFree
}

// PlanLimits guarda o limite diário de mensagens por plano. Lido na inicialização e imutável depois.
type PlanLimits struct {
	Free int
	Pro  int
}

func DefaultPlanLimits() PlanLimits {
	return PlanLimits{Free: 50, Pro: 5000}
}

func (l PlanLimits) Limit(plan Plan) int {
	if plan == PlanPro {
		return l.Pro
	}
	return l.Free
}

// Unlimited informa se o plano fica fora da contagem. Hoje só o pro.
func (l PlanLimits) Unlimited(plan Plan) bool {
	return plan == PlanPro
}

type UsageSummary struct {
	Plan       Plan  `json:"plan"`
	UsedToday  int64 `json:"usedToday"`
	DailyLimit int   `json:"dailyLimit"`
}
