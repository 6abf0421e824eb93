// Package devauth は開発用の認証サービスを提供する。
//
// gatewayが前提とするトークン検証の契約を実装する参照実装であり、
// ユーザー名だけで開発用のJWTを発行する。本番環境で使ってはならない。
//
//   - POST /{prefix}/auth/dev-token   {"username": "..."} → {"token": "...", "user_id": 1}
//   - POST /{prefix}/auth/verify-token {"token": "Bearer ..."} → {"user_id": 1} または401
//   - GET  /health
//
// ユーザーはSQLiteに保存し、スキーマは埋め込みのマイグレーションで適用する。
package devauth
