/*
包 server 管理 HTTP 服务器的生命周期.

Manager 封装 net/http.Server: Start 非阻塞监听, Run 阻塞到 context
取消后优雅关闭, 适合放进 errgroup. 配置了证书与私钥时以 HTTPS 启动,
TLS 参数来自 internal/tlsutil.
*/
package server
