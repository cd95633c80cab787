// Package discovery advertises and finds accelsock servers with mDNS.
//
// A server started with advertising enabled registers itself as
// _accelsock._tcp in the local. domain, with the socket path in a TXT
// record. The simulator browses for that service type so it can connect
// without being told an address.
//
//	ad, err := discovery.Advertise("accelsock", 5000, []string{"path=/ws"})
//	if err != nil {
//	    return err
//	}
//	defer ad.Shutdown()
//
//	svc, err := discovery.NewScanner().FindFirst(ctx)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(svc.SocketURL()) // wss://192.168.1.20:5000/ws
package discovery
