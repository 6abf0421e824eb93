package devauth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/svcgate/pkg/middleware"
)

// Server は開発用認証サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg はサービスの設定。
	cfg Config
	// users はユーザーの保存先。
	users *UserStore
	// tokens はトークンの発行・検証を行う。
	tokens *TokenIssuer
	// logger は構造化ロガー。
	logger *zap.Logger
}

// devTokenRequest は開発用トークン発行リクエスト。
type devTokenRequest struct {
	// Username はユーザー名。
	Username string `json:"username" binding:"required"`
}

// verifyTokenRequest はトークン検証リクエスト。
type verifyTokenRequest struct {
	// Token はAuthorizationヘッダーの値。
	Token string `json:"token" binding:"required"`
}

// NewServer は新しい開発用認証サーバーを生成する。
// db にはスキーマを適用する。
func NewServer(ctx context.Context, cfg Config, db *sql.DB, logger *zap.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := initSchema(ctx, db, logger); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.AccessLog(logger, "/health"))

	s := &Server{
		router: router,
		cfg:    cfg,
		users:  NewUserStore(db),
		tokens: NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL),
		logger: logger,
	}
	s.setupRoutes()

	return s, nil
}

// Handler はサーバーのHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctx がキャンセルされると停止する。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("開発用認証サービスを起動します", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	base := "/auth"
	if s.cfg.APIPrefix != "" {
		base = "/" + s.cfg.APIPrefix + base
	}

	auth := s.router.Group(base)
	{
		// 開発用トークン発行
		auth.POST("/dev-token", s.handleDevToken())
		// gatewayからのトークン検証
		auth.POST("/verify-token", s.handleVerifyToken())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "devauth"})
	})
}

// handleDevToken は開発用JWTトークンを発行するハンドラを返す。
// ユーザー名のユーザーが存在しなければ作成する。
func (s *Server) handleDevToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req devTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "usernameは必須です"})
			return
		}
		username := strings.TrimSpace(req.Username)
		if username == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "usernameは必須です"})
			return
		}

		user, err := s.users.Upsert(c.Request.Context(), username)
		if err != nil {
			s.logger.Error("開発ユーザーの作成に失敗しました", zap.String("username", username), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー作成に失敗しました"})
			return
		}

		token, err := s.tokens.Issue(user)
		if err != nil {
			s.logger.Error("JWTの生成に失敗しました", zap.Int64("user_id", user.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークン生成に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":   token,
			"user_id": user.ID,
		})
	}
}

// handleVerifyToken はトークンを検証してユーザーIDを返すハンドラを返す。
// 署名が正しくても、ユーザーが削除されている場合は401を返す。
func (s *Server) handleVerifyToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req verifyTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "トークンがありません"})
			return
		}

		claims, err := s.tokens.Verify(req.Token)
		if err != nil {
			s.logger.Debug("トークンの検証に失敗しました", zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "トークンが無効です"})
			return
		}

		user, err := s.users.Get(c.Request.Context(), claims.UserID)
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーが存在しません"})
			return
		}
		if err != nil {
			s.logger.Error("ユーザーの取得に失敗しました", zap.Int64("user_id", claims.UserID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー取得に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"user_id": user.ID})
	}
}
