package errors

import "errors"

var (
	// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
	ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

	// ErrConditionNotMet 条件更新未命中：记录当前状态不满足更新前置条件
	ErrConditionNotMet = errors.New("记录状态已变化，更新条件不满足")
)
