package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/eventmesa/regsvc/internal/domain"
)

func doLogin(ctx context.Context, cfg cliConfig, email, password, tokenName string, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "auth.login", map[string]any{
			"email":      email,
			"password":   password,
			"token_name": tokenName,
		}, out)
	}
	client := newAPIClient(cfg.Server, "")
	return client.request(ctx, http.MethodPost, "/api/auth/login", map[string]any{
		"email":      email,
		"password":   password,
		"token_name": tokenName,
	}, out)
}

func doWhoAmI(ctx context.Context, cfg cliConfig, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "auth.whoami", map[string]any{"token": cfg.Token}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodGet, "/api/auth/whoami", nil, out)
}

func doLogout(ctx context.Context, cfg cliConfig) error {
	if cfg.Transport == "uds" {
		return nil
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

func doApplicantsList(ctx context.Context, cfg cliConfig, q string, limit int, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "applicants.list", map[string]any{"token": cfg.Token, "q": q, "limit": limit}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	params := url.Values{}
	if q != "" {
		params.Set("q", q)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	path := "/api/admin/applicants"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}
	return client.request(ctx, http.MethodGet, path, nil, out)
}

func doAdmit(ctx context.Context, cfg cliConfig, userIDs []uint, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "admission.admit", map[string]any{"token": cfg.Token, "user_ids": userIDs}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodPost, "/api/admin/admit", map[string]any{"user_ids": userIDs}, out)
}

func doQuestionsList(ctx context.Context, cfg cliConfig, form string, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "questions.list", map[string]any{"token": cfg.Token, "form": form}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	path := "/api/admin/questions"
	if form != "" {
		path += "?form=" + url.QueryEscape(form)
	}
	return client.request(ctx, http.MethodGet, path, nil, out)
}

func doQuestionCreate(ctx context.Context, cfg cliConfig, q domain.Question, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "questions.create", map[string]any{"token": cfg.Token, "question": q}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodPost, "/api/admin/questions", q, out)
}

func doQuestionUpdate(ctx context.Context, cfg cliConfig, q domain.Question, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "questions.update", map[string]any{"token": cfg.Token, "question": q}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodPut, "/api/admin/questions/"+url.PathEscape(q.ID), q, out)
}

func doQuestionDelete(ctx context.Context, cfg cliConfig, id string, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "questions.delete", map[string]any{"token": cfg.Token, "id": id}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodDelete, "/api/admin/questions/"+url.PathEscape(id), nil, out)
}

func doSettingsGet(ctx context.Context, cfg cliConfig, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "settings.get", map[string]any{"token": cfg.Token}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodGet, "/api/admin/settings", nil, out)
}

func doSettingsUpdate(ctx context.Context, cfg cliConfig, settings domain.Settings, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "settings.update", map[string]any{"token": cfg.Token, "settings": settings}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodPut, "/api/admin/settings", settings, out)
}

func doAuditList(ctx context.Context, cfg cliConfig, limit int, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "audit.list", map[string]any{"token": cfg.Token, "limit": limit}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodGet, "/api/admin/audit", nil, out)
}

func uintToString(v uint) string {
	return fmt.Sprintf("%d", v)
}
