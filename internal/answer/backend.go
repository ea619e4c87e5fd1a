package answer

import "context"

// Request 生成回答所需的全部输入
type Request struct {
	Kind    InputKind // 输入类型：voice / csv / text
	Query   string    // 用户请求
	Context string    // 检索到的上下文
	History string    // 对话历史
}

// Backend 单个补全后端
type Backend interface {
	// Name 后端标识，用于排序与日志
	Name() string
	// Complete 发送补全请求并返回回答文本
	Complete(ctx context.Context, req Request) (string, error)
}
