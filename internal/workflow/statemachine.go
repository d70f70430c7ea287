// Package workflow 成绩审批流程: 状态机、授权和可见性控制
package workflow

import (
	"github.com/mautops/results-gin/internal/apperr"
	"github.com/mautops/results-gin/internal/model"
)

// transitions 合法的状态迁移表,空状态表示记录尚不存在
var transitions = map[model.ResultStatus][]model.ResultStatus{
	"":                    {model.StatusDraft},
	model.StatusDraft:     {model.StatusSubmitted},
	model.StatusRejected:  {model.StatusSubmitted},
	model.StatusSubmitted: {model.StatusHODReview, model.StatusApproved},
	model.StatusHODReview: {model.StatusApproved, model.StatusRejected, model.StatusDraft},
	model.StatusApproved:  {model.StatusPublished},
}

// CanTransition 判断 from -> to 是否合法
func CanTransition(from, to model.ResultStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Step 一次状态迁移
type Step struct {
	From model.ResultStatus
	To   model.ResultStatus
}

// Path 校验从 from 出发依次经过 states 的路径,返回每一步
func Path(from model.ResultStatus, states ...model.ResultStatus) ([]Step, error) {
	steps := make([]Step, 0, len(states))
	cur := from
	for _, next := range states {
		if !CanTransition(cur, next) {
			return nil, apperr.State("illegal transition from %q to %q", cur, next)
		}
		steps = append(steps, Step{From: cur, To: next})
		cur = next
	}
	return steps, nil
}

// submitPath 提交后的状态路径: 考试进入系主任审核,其他类型直接发布
func submitPath(from model.ResultStatus, requiresApproval bool) ([]Step, error) {
	var states []model.ResultStatus
	if from == "" {
		states = append(states, model.StatusDraft)
	}
	states = append(states, model.StatusSubmitted)
	if requiresApproval {
		states = append(states, model.StatusHODReview)
	} else {
		states = append(states, model.StatusApproved, model.StatusPublished)
	}
	return Path(from, states...)
}

// Resubmittable 判断记录是否允许重新提交
func Resubmittable(status model.ResultStatus) bool {
	return status == model.StatusDraft || status == model.StatusRejected
}
