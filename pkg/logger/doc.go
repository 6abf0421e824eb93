// Package logger はサービス共通の構造化ロガーを提供する。
//
// zapを用い、本番環境ではJSON、開発環境ではコンソール形式で出力する。
package logger
