// internal/service/gift/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

var (
	ErrZoneNotFound       = errors.New("zone not found")
	ErrGiftNotFound       = errors.New("gift not found")
	ErrPlayerNotFound     = errors.New("player not found")
	ErrAllocationNotFound = errors.New("allocation not found")

	// ErrQuotaExhausted 是预期中的高频结果（奖品售罄），
	// 调用方必须显式分支处理，而不是当异常吞掉。
	ErrQuotaExhausted = errors.New("quota exhausted")

	// ErrInvalidTransition 表示状态机收到非法流转，属于程序或竞态错误，
	// 必须记为服务端故障，不允许静默忽略。
	ErrInvalidTransition = errors.New("invalid allocation state transition")

	// ErrDuplicateAllocation 由仓储在唯一索引冲突时返回，
	// 发奖引擎据此把并发的重复 claim 归并为幂等结果。
	ErrDuplicateAllocation = errors.New("live allocation already exists for this gift and player")
)

// RefusalReason 是 claim 被拒绝时面向调用方的原因码。
type RefusalReason string

const (
	ReasonGiftInactive   RefusalReason = "GIFT_INACTIVE"
	ReasonLevelTooLow    RefusalReason = "LEVEL_TOO_LOW"
	ReasonNoZoneQuota    RefusalReason = "NO_ZONE_QUOTA"
	ReasonRuleRejected   RefusalReason = "RULE_REJECTED"
	ReasonSoldOut        RefusalReason = "SOLD_OUT"
	ReasonAlreadyClaimed RefusalReason = "ALREADY_CLAIMED"
)

// ClaimRefusedError 携带拒绝原因的业务错误。
type ClaimRefusedError struct {
	Reason RefusalReason
}

func (e *ClaimRefusedError) Error() string {
	return fmt.Sprintf("claim refused: %s", e.Reason)
}

// NewClaimRefused 构造一个拒绝错误。
func NewClaimRefused(reason RefusalReason) *ClaimRefusedError {
	return &ClaimRefusedError{Reason: reason}
}

// ValidationError 表示请求在改变任何状态之前就被拒绝，
// 带字段级细节，接口层映射为 4xx。
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NewValidationError 构造一个字段校验错误。
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
