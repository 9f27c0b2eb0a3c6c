// Package tlsutil 提供出站 HTTP 客户端与 HTTPS 服务端共用的 TLS 加固配置
// (TLS 1.2+, 仅 AEAD 密码套件).
package tlsutil
