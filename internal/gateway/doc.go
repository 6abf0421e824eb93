// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// リクエストパスの先頭セグメントからサービスを解決し、認証サービスに
// Bearerトークンの検証を委譲したうえで、request-id と user-id を付与して
// バックエンドへ転送する。下流の失敗はgatewayのエラー種別に変換して返す。
//
// 1リクエストの処理は ROUTE → AUTH → FORWARD → DONE の順に進み、
// 各段階で失敗した場合はその場で1つのエラー応答を返して終了する。
// gateway自身が再試行することはない。
package gateway
