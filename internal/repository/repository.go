package repository

import "errors"

// ErrNotFound 实体不存在
// 调度与投递任务依赖它区分"暂时缺失"（正常终止）和基础设施故障（向上传播）
var ErrNotFound = errors.New("not found")
