package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/joseph-ayodele/labreport/internal/entity"
	"github.com/joseph-ayodele/labreport/internal/llm"
)

func chatServer(t *testing.T, status int, content string, calls *int32, check func(*http.Request, map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if check != nil {
			check(r, body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = io.WriteString(w, `{"error":{"message":"invalid api key","type":"authentication_error"}}`)
			return
		}
		resp := map[string]any{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"model":  "deepseek-chat",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestStructureParsesFencedJSON(t *testing.T) {
	var calls int32
	content := "```json\n{\"title\":\"血常规\",\"core_conclusion\":\"轻度贫血\",\"abnormal_analysis\":\"血红蛋白偏低\",\"life_advice\":\"建议复查;多休息;清淡饮食\"}\n```"
	srv := chatServer(t, http.StatusOK, content, &calls, func(r *http.Request, body map[string]any) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-chat" {
			t.Errorf("Authorization = %q", got)
		}
		if body["model"] != "deepseek-chat" {
			t.Errorf("model = %v", body["model"])
		}
		rf, _ := body["response_format"].(map[string]any)
		if rf["type"] != "json_object" {
			t.Errorf("response_format = %v, want json_object", body["response_format"])
		}
	})
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	report, ok := c.Structure(context.Background(), "血红蛋白 95 g/L", entity.Credentials{ChatKey: "sk-chat"})
	if !ok {
		t.Fatalf("Structure() ok = false, report = %+v", report)
	}
	want := entity.StructuredReport{
		Title:            "血常规",
		CoreConclusion:   "轻度贫血",
		AbnormalAnalysis: "血红蛋白偏低",
		LifeAdvice:       "建议复查;多休息;清淡饮食",
	}
	if report != want {
		t.Fatalf("Structure() = %+v, want %+v", report, want)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestStructureTruncatesPrompt(t *testing.T) {
	var calls int32
	long := strings.Repeat("§", 5000)
	srv := chatServer(t, http.StatusOK, `{"title":"t"}`, &calls, func(_ *http.Request, body map[string]any) {
		msgs, _ := body["messages"].([]any)
		if len(msgs) != 1 {
			t.Errorf("messages = %d, want 1", len(msgs))
			return
		}
		text, _ := msgs[0].(map[string]any)["content"].(string)
		if n := strings.Count(text, "§"); n != 3000 {
			t.Errorf("prompt carries %d chars of OCR text, want 3000", n)
		}
	})
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	if _, ok := c.Structure(context.Background(), long, entity.Credentials{ChatKey: "k"}); !ok {
		t.Fatal("Structure() ok = false")
	}
}

func TestStructureNonJSONYieldsPlaceholder(t *testing.T) {
	var calls int32
	srv := chatServer(t, http.StatusOK, "抱歉，我无法解读", &calls, nil)
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	report, ok := c.Structure(context.Background(), "text", entity.Credentials{ChatKey: "k"})
	if ok {
		t.Fatal("Structure() ok = true, want placeholder")
	}
	if report.Title != llm.PlaceholderTitle || report.CoreConclusion != llm.PlaceholderConclusion {
		t.Fatalf("Structure() = %+v, want placeholder", report)
	}
	if report.AbnormalAnalysis == "" {
		t.Fatal("placeholder carries no diagnostic")
	}
}

func TestStructureHTTPErrorYieldsPlaceholderWithoutRetry(t *testing.T) {
	var calls int32
	srv := chatServer(t, http.StatusUnauthorized, "", &calls, nil)
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	report, ok := c.Structure(context.Background(), "text", entity.Credentials{ChatKey: "bad"})
	if ok || report.Title != llm.PlaceholderTitle {
		t.Fatalf("Structure() = %+v, %v; want placeholder", report, ok)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want exactly 1", calls)
	}
}

func TestStructureWithoutKeyMakesNoCall(t *testing.T) {
	var calls int32
	srv := chatServer(t, http.StatusOK, `{}`, &calls, nil)
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	if _, ok := c.Structure(context.Background(), "text", entity.Credentials{}); ok {
		t.Fatal("Structure() ok = true without key")
	}
	if calls != 0 {
		t.Fatalf("calls = %d, want 0", calls)
	}
}
