package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
)

func TestDecodeInboundChat(t *testing.T) {
	validate := validator.New()

	frame := DecodeInbound([]byte(`{"conversationId":"conv-1","content":"你好","type":"TEXT"}`), validate)
	if frame.Kind != FrameChat {
		t.Fatalf("kind = %v, want FrameChat (reason=%s)", frame.Kind, frame.Reason)
	}
	if frame.Chat.ConversationId != "conv-1" || frame.Chat.Content != "你好" {
		t.Fatalf("载荷解析错误: %+v", frame.Chat)
	}
}

func TestDecodeInboundChatDefaultsType(t *testing.T) {
	frame := DecodeInbound([]byte(`{"conversationId":"conv-1","content":"hi"}`), validator.New())
	if frame.Kind != FrameChat {
		t.Fatalf("kind = %v, want FrameChat", frame.Kind)
	}
	if frame.Chat.Type != "TEXT" {
		t.Fatalf("type = %q, want TEXT", frame.Chat.Type)
	}
}

func TestDecodeInboundControl(t *testing.T) {
	validate := validator.New()
	if frame := DecodeInbound([]byte(`{"type":"ping"}`), validate); frame.Kind != FramePing {
		t.Fatalf("ping 帧识别失败: %v", frame.Kind)
	}
	if frame := DecodeInbound([]byte(`{"type":"pong","timestamp":123}`), validate); frame.Kind != FramePong {
		t.Fatalf("pong 帧识别失败: %v", frame.Kind)
	}
}

func TestDecodeInboundReceipts(t *testing.T) {
	validate := validator.New()

	frame := DecodeInbound([]byte(`{"type":"MESSAGE_DELIVERED","data":{"messageId":"42","timestamp":1700000000000}}`), validate)
	if frame.Kind != FrameDelivered {
		t.Fatalf("kind = %v, want FrameDelivered", frame.Kind)
	}
	if frame.Status.MessageId != "42" || frame.Status.Timestamp != 1700000000000 {
		t.Fatalf("回执载荷解析错误: %+v", frame.Status)
	}

	frame = DecodeInbound([]byte(`{"type":"MESSAGE_READ","data":{"messageId":"42"}}`), validate)
	if frame.Kind != FrameRead {
		t.Fatalf("kind = %v, want FrameRead", frame.Kind)
	}
}

func TestDecodeInboundInvalid(t *testing.T) {
	validate := validator.New()
	cases := []struct {
		name string
		raw  string
	}{
		{"非 JSON", `{not json`},
		{"缺会话 ID", `{"content":"hi"}`},
		{"空内容", `{"conversationId":"conv-1","content":""}`},
		{"未知消息类型", `{"conversationId":"conv-1","content":"hi","type":"VIDEO"}`},
		{"回执缺消息 ID", `{"type":"MESSAGE_READ","data":{}}`},
		{"回执 data 非法", `{"type":"MESSAGE_DELIVERED","data":"oops"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frame := DecodeInbound([]byte(tc.raw), validate)
			if frame.Kind != FrameInvalid {
				t.Fatalf("kind = %v, want FrameInvalid", frame.Kind)
			}
			if frame.Reason == "" {
				t.Fatal("非法帧必须带拒绝原因")
			}
		})
	}
}

func TestOutboundFrames(t *testing.T) {
	var ack map[string]any
	if err := json.Unmarshal(AckFrame("42"), &ack); err != nil {
		t.Fatal(err)
	}
	if ack["type"] != "ack" || ack["messageId"] != "42" {
		t.Fatalf("ack 帧形状错误: %v", ack)
	}

	var errFrame map[string]any
	if err := json.Unmarshal(ErrorFrame("bad"), &errFrame); err != nil {
		t.Fatal(err)
	}
	if errFrame["type"] != "error" || errFrame["message"] != "bad" {
		t.Fatalf("error 帧形状错误: %v", errFrame)
	}

	now := time.UnixMilli(1700000000000)
	var ping map[string]any
	if err := json.Unmarshal(PingFrame(now), &ping); err != nil {
		t.Fatal(err)
	}
	if ping["type"] != "ping" || int64(ping["timestamp"].(float64)) != 1700000000000 {
		t.Fatalf("ping 帧形状错误: %v", ping)
	}
	var pong map[string]any
	if err := json.Unmarshal(PongFrame(now), &pong); err != nil {
		t.Fatal(err)
	}
	if pong["type"] != "pong" {
		t.Fatalf("pong 帧形状错误: %v", pong)
	}
}
