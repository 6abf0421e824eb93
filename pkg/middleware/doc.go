// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// パニックリカバリとアクセスログなど、gatewayとdevauthの両方で
// 共通して使用するミドルウェアを含む。
package middleware
