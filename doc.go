// Package multicore 提供点对点复制与 actor 可见性的进程级入口
//
// 两个角色：
//
//   - Relay: websocket 中继，把浏览器端的复制流桥接到服务端会话，
//     每个会话可以再加入 swarm 与局域网内的对端直连
//   - Peer: 本地对端，持有存储、身份、会话、文档与 actor 注册表
//
// # 快速开始
//
//	cfg := config.NewConfig()
//	cfg.Bridge.ListenAddr = ":8080"
//
//	relay, err := multicore.NewRelay(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := relay.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer relay.Stop(context.Background())
//
// 对端：
//
//	cfg := config.NewConfig()
//	cfg.Storage.Mode = config.StorageModeBadger
//	cfg.Identity.Name = "alice"
//
//	peer, err := multicore.OpenPeer(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer peer.Close()
//
//	fmt.Println(peer.ID())      // 文档标识，分享给其他对端
//	fmt.Println(peer.Actors())  // 当前 actor 可见性
//
// 组件通过 Fx 组装，见 NewRelayApp。
package multicore
