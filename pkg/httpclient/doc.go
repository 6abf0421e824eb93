// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// gatewayがバックエンドへリクエストを転送する処理と、認証サービスへの
// トークン検証のようなJSON呼び出しの両方で使用する。接続プールは
// 全リクエストで共有し、呼び出しごとに上限時間を設ける。
// 失敗は接続失敗・通信失敗・エラーステータスの3種類に分類して返す。
package httpclient
