package port

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/components/model"

	wfmodel "lesson-forge-api/internal/workflow/model"
)

// ErrMalformedResponse 模型输出无法解析为章节结构，或缺少要求的章节
var ErrMalformedResponse = errors.New("malformed generation response")

// GenerationClient 生成客户端。整篇生成返回完整产物；定向修复只返回 SectionScope 内的章节。
type GenerationClient interface {
	Generate(ctx context.Context, call *wfmodel.GenerationCall) (*wfmodel.Artifact, error)
}

// ChatModelFactory 按服务商名称获取 ChatModel；名称为空时使用默认服务商
type ChatModelFactory interface {
	Get(ctx context.Context, provider string) (model.BaseChatModel, error)
}

// GenerationClientFunc 函数适配器
type GenerationClientFunc func(ctx context.Context, call *wfmodel.GenerationCall) (*wfmodel.Artifact, error)

func (f GenerationClientFunc) Generate(ctx context.Context, call *wfmodel.GenerationCall) (*wfmodel.Artifact, error) {
	return f(ctx, call)
}
