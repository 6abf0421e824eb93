// Package registry はサービス名からベースアドレスへの静的な対応表を提供する。
//
// 対応表は起動時に一度だけ構築・検証され、その後は変更されない。
// 読み取り専用のため、複数のゴルーチンから同期なしで参照できる。
package registry
