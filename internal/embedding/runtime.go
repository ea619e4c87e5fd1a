package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fridahub/retrieval-go/internal/logger"
)

// ModelRuntime 嵌入模型推理运行时的客户端接口
// 模型（multilingual-e5-large）由本机的推理服务托管，共享同一块GPU；
// 运行时返回逐token的隐藏状态，池化与归一化在调用方完成
type ModelRuntime interface {
	// EncodeTokens 对一批文本编码，返回逐token隐藏状态与attention mask
	EncodeTokens(ctx context.Context, texts []string, maxLength int) (*TokenBatch, error)
	// Device 查询模型当前所在设备
	Device(ctx context.Context) (string, error)
	// SetDevice 将模型迁移到指定设备（cuda/cpu）
	SetDevice(ctx context.Context, device string) error
	// ReclaimMemory 清理显存缓存并触发垃圾回收
	ReclaimMemory(ctx context.Context) error
	Ready() bool
}

// TokenBatch 一批文本的逐token编码结果
type TokenBatch struct {
	// HiddenStates [批大小][token数][隐藏维度]
	HiddenStates [][][]float32 `json:"hidden_states"`
	// AttentionMask [批大小][token数]，1为有效token，0为padding
	AttentionMask [][]int `json:"attention_mask"`
}

// HTTPRuntime 通过HTTP访问本机推理服务
type HTTPRuntime struct {
	baseURL string
	client  *http.Client
	limiter sync.Mutex
}

// encodeRequest 编码请求
type encodeRequest struct {
	Inputs    []string `json:"inputs"`
	MaxLength int      `json:"max_length,omitempty"`
	Truncate  bool     `json:"truncate"`
}

// deviceRequest 设备迁移请求
type deviceRequest struct {
	Device string `json:"device"`
}

// deviceResponse 设备查询响应
type deviceResponse struct {
	Device string `json:"device"`
}

// runtimeError 推理服务错误响应
type runtimeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewHTTPRuntime 创建推理服务客户端
func NewHTTPRuntime(baseURL string) *HTTPRuntime {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		logger.Warn("Embedding runtime URL is empty")
		return nil
	}

	return &HTTPRuntime{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 120 * time.Second, // 大批量编码可能耗时较长
		},
	}
}

// EncodeTokens 调用编码接口
func (r *HTTPRuntime) EncodeTokens(ctx context.Context, texts []string, maxLength int) (*TokenBatch, error) {
	if r == nil || r.client == nil {
		return nil, fmt.Errorf("embedding runtime not initialized")
	}

	r.limiter.Lock()
	defer r.limiter.Unlock()

	body, err := r.post(ctx, "/encode", encodeRequest{
		Inputs:    texts,
		MaxLength: maxLength,
		Truncate:  true,
	})
	if err != nil {
		return nil, err
	}

	var batch TokenBatch
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, fmt.Errorf("解析编码响应失败: %w", err)
	}
	if len(batch.HiddenStates) != len(texts) || len(batch.AttentionMask) != len(texts) {
		return nil, fmt.Errorf("编码响应数量不匹配: 请求%d条, 返回%d条", len(texts), len(batch.HiddenStates))
	}

	return &batch, nil
}

// Device 查询模型当前设备
func (r *HTTPRuntime) Device(ctx context.Context) (string, error) {
	if r == nil || r.client == nil {
		return "", fmt.Errorf("embedding runtime not initialized")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/model/device", nil)
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("推理服务调用失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", runtimeHTTPError(resp.StatusCode, body)
	}

	var dev deviceResponse
	if err := json.Unmarshal(body, &dev); err != nil {
		return "", fmt.Errorf("解析设备响应失败: %w", err)
	}
	return dev.Device, nil
}

// SetDevice 迁移模型到指定设备
func (r *HTTPRuntime) SetDevice(ctx context.Context, device string) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("embedding runtime not initialized")
	}
	_, err := r.post(ctx, "/model/device", deviceRequest{Device: device})
	return err
}

// ReclaimMemory 清理显存缓存
func (r *HTTPRuntime) ReclaimMemory(ctx context.Context) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("embedding runtime not initialized")
	}
	_, err := r.post(ctx, "/memory/reclaim", struct{}{})
	return err
}

// Ready 检查推理服务是否可用
func (r *HTTPRuntime) Ready() bool {
	if r == nil || r.client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := r.Device(ctx)
	return err == nil
}

// post 发送JSON请求并返回响应体
func (r *HTTPRuntime) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("推理服务调用失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, runtimeHTTPError(resp.StatusCode, body)
	}

	return body, nil
}

func runtimeHTTPError(status int, body []byte) error {
	var errResp runtimeError
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		return fmt.Errorf("推理服务错误: %s (code: %s)", errResp.Message, errResp.Code)
	}
	logger.Debug("runtime error body", zap.ByteString("body", body))
	return fmt.Errorf("推理服务错误: HTTP %d - %s", status, string(body))
}
